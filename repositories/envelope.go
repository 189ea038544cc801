package repositories

import (
	"bytes"
	"encoding/json"
	"eventmaster/domain"
	"fmt"
	"sort"
)

// SchemaVersion is written with every collection. Version 0 is the bare JSON
// shape written by the mobile app, still accepted on read.
const SchemaVersion = 1

type envelope[T any] struct {
	SchemaVersion int `json:"schemaVersion"`
	Records       []T `json:"records"`
}

type rawEnvelope struct {
	SchemaVersion *int            `json:"schemaVersion"`
	Records       json.RawMessage `json:"records"`
}

func encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	return json.Marshal(envelope[T]{SchemaVersion: SchemaVersion, Records: records})
}

// decode returns the records and the schema version they were stored with.
func decode[T any](raw []byte, legacy func([]byte) ([]T, error)) ([]T, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, SchemaVersion, nil
	}
	if trimmed[0] == '{' {
		var env rawEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, 0, err
		}
		if env.SchemaVersion != nil {
			if *env.SchemaVersion > SchemaVersion {
				return nil, *env.SchemaVersion, fmt.Errorf("unsupported schema version %d", *env.SchemaVersion)
			}
			var records []T
			if len(env.Records) > 0 {
				if err := json.Unmarshal(env.Records, &records); err != nil {
					return nil, *env.SchemaVersion, err
				}
			}
			return records, *env.SchemaVersion, nil
		}
	}
	records, err := legacy(trimmed)
	return records, 0, err
}

func decodeLegacyArray[T any](raw []byte) ([]T, error) {
	var records []T
	err := json.Unmarshal(raw, &records)
	return records, err
}

// decodeLegacyChats reads the app's map of event id to message list.
// Events are visited in key order since the map carries no global order.
func decodeLegacyChats(raw []byte) ([]domain.ChatMessage, error) {
	if raw[0] == '[' {
		return decodeLegacyArray[domain.ChatMessage](raw)
	}
	var byEvent map[string][]domain.ChatMessage
	if err := json.Unmarshal(raw, &byEvent); err != nil {
		return nil, err
	}
	eventIDs := make([]string, 0, len(byEvent))
	for id := range byEvent {
		eventIDs = append(eventIDs, id)
	}
	sort.Strings(eventIDs)

	var messages []domain.ChatMessage
	for _, id := range eventIDs {
		for _, m := range byEvent[id] {
			m.EventID = id
			messages = append(messages, m)
		}
	}
	return messages, nil
}
