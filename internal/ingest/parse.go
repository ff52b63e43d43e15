// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package ingest implements the ingestion pipeline (C4): tolerant payload
// parsing, numeric normalization, owner enrichment, and per-device sharded
// submission into dedup, persistence, and broadcast.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jothiesh/gpstracker/internal/models"
)

// wirePayload mirrors the inbound broker payload field set (spec §6.1).
// Keys are matched case-insensitively by normalizing to lower-case before
// unmarshaling into this struct's canonical (lower-case) tags.
type wirePayload struct {
	DeviceID         string `json:"deviceid"`
	Timestamp        string `json:"timestamp"`
	Latitude         string `json:"latitude"`
	Longitude        string `json:"longitude"`
	Speed            string `json:"speed"`
	Course           string `json:"course"`
	Ignition         string `json:"ignition"`
	VehicleStatus    string `json:"vehiclestatus"`
	Status           string `json:"status"`
	IMEI             string `json:"imei"`
	SequenceNumber   string `json:"sequencenumber"`
	GSMStrength      string `json:"gsmstrength"`
	AdditionalData   string `json:"additionaldata"`
	TimeIntervals    string `json:"timeintervals"`
	DistanceInterval string `json:"distanceinterval"`
	Panic            json.RawMessage `json:"panic"`
	SerialNo         string `json:"serialno"`
}

// timestampLayout is the device wall-clock layout; no timezone information
// is present, and the parsed time.Time carries no location adjustment
// (spec §4.4 step 3, §9).
const timestampLayout = "2006-01-02 15:04:05"

// ParseError is a ValidationError (spec §7): bad payload, never retried.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ingest: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseConcatenated tolerantly decodes a payload that is either a single
// JSON object or several objects concatenated back-to-back without a
// wrapping array or separators (spec §6.1, §4.4 step 1). It streams
// through a json.Decoder rather than splitting the buffer, so malformed
// trailing bytes after the last complete object are reported without
// discarding samples already parsed.
func ParseConcatenated(payload []byte) ([]models.LocationSample, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	var samples []models.LocationSample
	for {
		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			if len(samples) > 0 {
				// Trailing garbage after at least one good object: keep
				// what parsed, per the tolerant-parsing contract.
				break
			}
			return nil, &ParseError{Reason: "malformed payload", Err: err}
		}

		sample, err := decodeOne(lowerKeys(raw))
		if err != nil {
			return samples, err
		}
		samples = append(samples, sample)
	}

	if len(samples) == 0 {
		return nil, &ParseError{Reason: "no objects found in payload"}
	}
	return samples, nil
}

func lowerKeys(raw map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		out[strings.ToLower(k)] = v
	}
	return out
}

func decodeOne(raw map[string]json.RawMessage) (models.LocationSample, error) {
	get := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		// Some fields (e.g. panic) may arrive as a bare number.
		return strings.Trim(string(v), `"`)
	}

	deviceID := get("deviceid")
	if deviceID == "" {
		return models.LocationSample{}, &ParseError{Reason: "deviceID is required"}
	}

	tsRaw := get("timestamp")
	if tsRaw == "" {
		return models.LocationSample{}, &ParseError{Reason: "timestamp is required"}
	}
	ts, err := time.Parse(timestampLayout, tsRaw)
	if err != nil {
		return models.LocationSample{}, &ParseError{Reason: "invalid timestamp", Err: err}
	}

	sample := models.LocationSample{DeviceID: deviceID, Timestamp: ts}

	if v := get("latitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Latitude = &f
		}
	}
	if v := get("longitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Longitude = &f
		}
	}
	if v := get("speed"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Speed = &f
		}
	}
	if v := get("course"); v != "" {
		sample.Course = &v
	}
	if v := get("ignition"); v != "" {
		on := strings.EqualFold(v, "ON")
		sample.Ignition = &on
	}
	if v := get("vehiclestatus"); v != "" {
		sample.VehicleStatus = &v
	} else if v := get("status"); v != "" {
		sample.VehicleStatus = &v
	}
	if v := get("gsmstrength"); v != "" {
		sample.GSMStrength = &v
	}
	if v := get("sequencenumber"); v != "" {
		sample.SequenceNumber = &v
	}
	if v := get("panic"); v != "" {
		p := v == "1" || strings.EqualFold(v, "true")
		sample.Panic = &p
	}

	return sample, nil
}
