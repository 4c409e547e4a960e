package handler

import (
	"time"

	"namereg/internal/events"
	"namereg/internal/registry/models"
	"namereg/pkg/domain"
)

// RegisterRequest is the body of POST /names.
type RegisterRequest struct {
	Name            string `json:"name"`
	DurationSeconds int64  `json:"duration_seconds"`
	Owner           string `json:"owner"`
	Resolver        string `json:"resolver,omitempty"`
}

// ExtendRequest is the body of POST /names/{name}/extend.
type ExtendRequest struct {
	DurationSeconds int64 `json:"duration_seconds"`
}

// SetOwnerRequest is the body of PUT /names/{name}/owner.
type SetOwnerRequest struct {
	Owner string `json:"owner"`
}

// SetResolverRequest is the body of PUT /names/{name}/resolver. An empty
// resolver clears it.
type SetResolverRequest struct {
	Resolver string `json:"resolver"`
}

type RecordResponse struct {
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	Resolver     string `json:"resolver,omitempty"`
	Expiry       int64  `json:"expiry"`
	ExpiresAt    string `json:"expires_at"`
	Expired      bool   `json:"expired"`
	RegisteredAt string `json:"registered_at"`
	UpdatedAt    string `json:"updated_at"`
}

type EventResponse struct {
	Type models.EventType `json:"type"`
	Data models.Event     `json:"data"`
}

// ReceiptResponse is returned by every mutation.
type ReceiptResponse struct {
	Record RecordResponse  `json:"record"`
	Events []EventResponse `json:"events"`
}

type ExpiryResponse struct {
	Name      string `json:"name"`
	Expiry    int64  `json:"expiry"`
	ExpiresAt string `json:"expires_at"`
	Expired   bool   `json:"expired"`
}

type IdentityResponse struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

type EventLogResponse struct {
	Name   string            `json:"name"`
	Events []events.Envelope `json:"events"`
}

func toRecordResponse(rec *models.Record, now time.Time) RecordResponse {
	return RecordResponse{
		Name:         rec.Name.String(),
		Owner:        rec.Owner.String(),
		Resolver:     rec.Resolver.String(),
		Expiry:       rec.Expiry.Unix(),
		ExpiresAt:    rec.Expiry.UTC().Format(time.RFC3339),
		Expired:      rec.IsExpired(now),
		RegisteredAt: rec.RegisteredAt.UTC().Format(time.RFC3339),
		UpdatedAt:    rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toReceiptResponse(receipt *models.Receipt, now time.Time) ReceiptResponse {
	resp := ReceiptResponse{
		Record: toRecordResponse(receipt.Record, now),
		Events: make([]EventResponse, 0, len(receipt.Events)),
	}
	for _, ev := range receipt.Events {
		resp.Events = append(resp.Events, EventResponse{Type: ev.Type(), Data: ev})
	}
	return resp
}

func toExpiryResponse(name string, expiry time.Time, now time.Time) ExpiryResponse {
	return ExpiryResponse{
		Name:      name,
		Expiry:    expiry.Unix(),
		ExpiresAt: expiry.UTC().Format(time.RFC3339),
		Expired:   !expiry.After(now),
	}
}

func toIdentityResponse(name string, ident domain.Identity) IdentityResponse {
	return IdentityResponse{Name: name, Identity: ident.String()}
}
