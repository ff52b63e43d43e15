// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package models holds the domain entities shared across ingestion,
// persistence, caching, and broadcast.
package models

import "time"

// OwnerRefs is the set of optional owner references copied onto a Vehicle
// and denormalized onto every Location Sample at ingest, so queries can be
// scoped by owner without a join back to the vehicle directory.
type OwnerRefs struct {
	DealerID     *int64 `json:"dealerId,omitempty"`
	AdminID      *int64 `json:"adminId,omitempty"`
	ClientID     *int64 `json:"clientId,omitempty"`
	UserID       *int64 `json:"userId,omitempty"`
	SuperadminID *int64 `json:"superadminId,omitempty"`
}

// Each iterates the non-nil owner references as (role, id) pairs, in the
// fixed order dealer, admin, client, user, superadmin — the order the
// broadcast fabric uses when fanning a sample out to role-scoped topics.
func (o OwnerRefs) Each(fn func(role string, id int64)) {
	if o.DealerID != nil {
		fn("dealer", *o.DealerID)
	}
	if o.AdminID != nil {
		fn("admin", *o.AdminID)
	}
	if o.ClientID != nil {
		fn("client", *o.ClientID)
	}
	if o.UserID != nil {
		fn("user", *o.UserID)
	}
	if o.SuperadminID != nil {
		fn("superadmin", *o.SuperadminID)
	}
}

// Vehicle is the permanent record an external CRUD surface owns; gpstracker
// only reads it to enrich ingested samples with owner references.
type Vehicle struct {
	ID             int64  `json:"id"`
	SerialNumber   string `json:"serialNumber"`
	IMEI           string `json:"imei,omitempty"`
	DeviceID       string `json:"deviceId,omitempty"`
	InstallationAt time.Time `json:"installationDate"`
	RenewalAt      time.Time `json:"renewalDate"`
	Owners         OwnerRefs `json:"owners"`
}

// LocationSample is one device-originated position record as it flows
// through ingestion into history. Timestamp is stored and compared as the
// device's verbatim local wall clock — never converted to another zone.
type LocationSample struct {
	DeviceID       string    `json:"deviceID"`
	Timestamp      time.Time `json:"timestamp"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Speed          *float64  `json:"speed,omitempty"`
	Course         *string   `json:"course,omitempty"`
	Ignition       *bool     `json:"ignition,omitempty"`
	VehicleStatus  *string   `json:"vehicleStatus,omitempty"`
	GSMStrength    *string   `json:"gsmStrength,omitempty"`
	SequenceNumber *string   `json:"sequenceNumber,omitempty"`
	Panic          *bool     `json:"panic,omitempty"`
	Owners         OwnerRefs `json:"owners"`
}

// Key returns the natural key (device-id, timestamp) upsert identity for
// this sample.
func (s LocationSample) Key() (string, time.Time) {
	return s.DeviceID, s.Timestamp
}

// LastLocation is the mutable, one-row-per-device derived view of the most
// recent accepted sample.
type LastLocation struct {
	LocationSample
	UpdatedAt time.Time `json:"updatedAt"`
}

// PartitionHealth classifies a partition's size against the configured
// thresholds (spec §4.2).
type PartitionHealth string

const (
	PartitionHealthy   PartitionHealth = "healthy"
	PartitionWarning   PartitionHealth = "warning"
	PartitionCritical  PartitionHealth = "critical"
	PartitionEmergency PartitionHealth = "emergency"
)

// Partition is the metadata view of one physical history table.
type Partition struct {
	Name      string          `json:"name"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	SizeBytes int64           `json:"sizeBytes"`
	RowCount  int64           `json:"rowCount"`
	Health    PartitionHealth `json:"health"`
}

// BrokerSessionState is the per-session connection state machine (spec
// §4.3).
type BrokerSessionState string

const (
	BrokerConnecting BrokerSessionState = "Connecting"
	BrokerActive     BrokerSessionState = "Active"
	BrokerDraining   BrokerSessionState = "Draining"
	BrokerLost       BrokerSessionState = "Lost"
)

// BrokerSession describes one pooled subscriber connection.
type BrokerSession struct {
	ConnectionID string
	BrokerURI    string
	Topics       []string
	MessageCount int64
	State        BrokerSessionState
}

// AlertLevel is the severity of an Alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "Info"
	AlertWarning  AlertLevel = "Warning"
	AlertCritical AlertLevel = "Critical"
)

// AlertKind enumerates the alert kinds this service raises itself. Email/SMS
// transport bindings are external and out of scope.
type AlertKind string

const (
	AlertSpeed       AlertKind = "SPEED_ALERT"
	AlertIgnition    AlertKind = "IGNITION_HOURS_ALERT"
	AlertCoordinates AlertKind = "SUSPICIOUS_COORDINATES_ALERT"
	AlertBatchFailed AlertKind = "BATCH_FAILED"
)

// Alert is a rate-limited, broadcastable event.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	Kind      AlertKind              `json:"kind"`
	DeviceID  string                 `json:"deviceId,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
