package models

import (
	"time"

	"github.com/google/uuid"
)

// CertificateStatus is the validity of an issued certificate.
type CertificateStatus string

const (
	CertificateIssued  CertificateStatus = "ISSUED"
	CertificateRevoked CertificateStatus = "REVOKED"
)

// Certificate is a participation certificate issued for an event.
type Certificate struct {
	ID               uuid.UUID         `json:"id"`
	EventID          uuid.UUID         `json:"event_id"`
	ParticipantEmail string            `json:"participant_email"`
	ParticipantName  string            `json:"participant_name"`
	Code             string            `json:"code"`
	Status           CertificateStatus `json:"status"`
	IssuedBy         uuid.UUID         `json:"issued_by"`
	IssuedAt         time.Time         `json:"issued_at"`
	RevokedBy        *uuid.UUID        `json:"revoked_by,omitempty"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
	RevokedReason    string            `json:"revoked_reason,omitempty"`
}
