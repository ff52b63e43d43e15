// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package broker

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogAdapter bridges Watermill's LoggerAdapter interface onto the
// service's zerolog logger, so the broker pool's subscriber construction
// goes through the same structured sink as everything else.
type watermillLogAdapter struct {
	log zerolog.Logger
}

func (a watermillLogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	ev := a.log.Error().Err(err)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a watermillLogAdapter) Info(msg string, fields watermill.LogFields) {
	ev := a.log.Info()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a watermillLogAdapter) Debug(msg string, fields watermill.LogFields) {
	ev := a.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a watermillLogAdapter) Trace(msg string, fields watermill.LogFields) {
	ev := a.log.Trace()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a watermillLogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ev := a.log.With()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return watermillLogAdapter{log: ev.Logger()}
}
