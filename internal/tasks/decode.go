package tasks

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

const turnTypeInput = "INPUT"

// PredictFunc recomputes a turn prediction from its text.
type PredictFunc func(text string) (any, error)

// Options carries the per-record context a decoder needs.
type Options struct {
	// DataID is the database id of the record, used by shapes without their own id.
	DataID any
	// Location is the timezone conversation reftimes are expressed in. Nil means UTC.
	Location *time.Location
	IsGold   bool
	Tags     any
	Predict  PredictFunc
}

// Decode builds a Task of type t from a source record.
func Decode(record map[string]any, t Type, opts Options) (Task, error) {
	meta := Meta{Tags: opts.Tags, IsGold: opts.IsGold}
	if record == nil {
		record = map[string]any{}
	}

	switch t {
	case TypeConversation:
		return decodeConversation(record, meta, opts.Location)
	case TypeSimulatedCall:
		return decodeSimulatedCall(record, meta, opts.Predict)
	case TypeCallTranscription:
		return decodeCallTranscription(record, meta, opts.DataID)
	case TypeAudioSegment:
		return &AudioSegment{
			Meta:           meta,
			ConversationID: normalizeID(record["conversation_id"]),
			AudioURL:       record["audio_url"],
		}, nil
	case TypeDataGeneration:
		id := strings.ReplaceAll(uuid.NewString(), "-", "")
		if v, ok := record["id"]; ok && v != nil {
			id = stringify(v)
		}
		return &DataGeneration{Meta: meta, TaskID: id}, nil
	case TypeDict:
		return &Dict{Meta: meta, DataID: normalizeID(opts.DataID), Body: record}, nil
	default:
		return nil, &DecodeError{Type: t, Message: fmt.Sprintf("invalid task type %q provided", t)}
	}
}

// firstPresent returns the value of the first key holding a non-nil value.
func firstPresent(record map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := record[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func decodeConversation(record map[string]any, meta Meta, loc *time.Location) (*Conversation, error) {
	callUUID := firstPresent(record, "call_uuid", "call_id")
	conversationUUID := firstPresent(record, "conversation_uuid", "conversation_id")

	var missing []string
	if callUUID == nil {
		missing = append(missing, "call_uuid", "call_id")
	}
	if conversationUUID == nil {
		missing = append(missing, "conversation_uuid", "conversation_id")
	}
	if len(missing) > 0 {
		return nil, &DecodeError{
			Type:    TypeConversation,
			Message: "no reference for call or conversation",
			Keys:    missing,
		}
	}

	altsKey := "alternatives"
	if _, ok := record["utterances"]; ok {
		altsKey = "utterances"
	}
	alternatives, err := decodeAlternatives(record[altsKey])
	if err != nil {
		return nil, &DecodeError{Type: TypeConversation, Message: "invalid " + altsKey, Keys: []string{altsKey}, Cause: err}
	}

	rawReftime, ok := record["reftime"].(string)
	if !ok {
		return nil, &DecodeError{Type: TypeConversation, Message: "reftime must be a string", Keys: []string{"reftime"}}
	}
	reftime, err := ToLocation(rawReftime, loc)
	if err != nil {
		return nil, &DecodeError{Type: TypeConversation, Message: "invalid reftime", Keys: []string{"reftime"}, Cause: err}
	}

	// A stored conversation document keeps its source record under raw.
	raw := maps.Clone(record)
	if stored, ok := record["raw"].(map[string]any); ok {
		raw = stored
	}

	conv := stringify(conversationUUID)
	return &Conversation{
		Meta:             meta,
		Alternatives:     alternatives,
		DataID:           conv,
		AudioURL:         record["audio_url"],
		CallUUID:         stringify(callUUID),
		ConversationUUID: conv,
		State:            record["state"],
		Reftime:          reftime,
		Prediction:       record["prediction"],
		Raw:              raw,
	}, nil
}

// decodeAlternatives accepts a list or a JSON encoded list.
func decodeAlternatives(v any) ([]any, error) {
	switch alts := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return alts, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(alts), &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported alternatives type %T", v)
	}
}

// keepTurn drops bot turns. Simulated bot text may differ from production and
// production does not return bot turns, so only input turns are modelled.
func keepTurn(turn map[string]any) bool {
	t, ok := turn["type"]
	return !ok || t == turnTypeInput
}

func turnMaps(t Type, v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &DecodeError{Type: t, Message: fmt.Sprintf("turns must be a list, got %T", v), Keys: []string{"turns"}}
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &DecodeError{Type: t, Message: fmt.Sprintf("turn %d is not an object", i), Keys: []string{"turns"}}
		}
		if keepTurn(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func decodeSimulatedCall(record map[string]any, meta Meta, predict PredictFunc) (*SimulatedCall, error) {
	raw, err := turnMaps(TypeSimulatedCall, record["turns"])
	if err != nil {
		return nil, err
	}

	turns := make([]SimulatedTurn, 0, len(raw))
	for _, td := range raw {
		text, _ := td["text"].(string)
		pred, err := turnPrediction(td, text, predict)
		if err != nil {
			return nil, &DecodeError{Type: TypeSimulatedCall, Message: "invalid turn prediction", Keys: []string{"prediction"}, Cause: err}
		}
		turnType, _ := td["type"].(string)
		turns = append(turns, SimulatedTurn{
			ID:         normalizeID(td["id"]),
			Type:       turnType,
			SubType:    td["sub_type"],
			Text:       text,
			Prediction: pred,
		})
	}

	return &SimulatedCall{Meta: meta, CallID: normalizeID(record["id"]), Turns: turns}, nil
}

func turnPrediction(td map[string]any, text string, predict PredictFunc) (any, error) {
	if predict != nil {
		return predict(text)
	}
	switch p := td["prediction"].(type) {
	case string:
		var out any
		if err := json.Unmarshal([]byte(p), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return p, nil
	}
}

func decodeCallTranscription(record map[string]any, meta Meta, dataID any) (*CallTranscription, error) {
	raw, err := turnMaps(TypeCallTranscription, record["turns"])
	if err != nil {
		return nil, err
	}

	turns := make([]TranscriptionTurn, 0, len(raw))
	for _, td := range raw {
		turnType, _ := td["type"].(string)
		text, _ := td["text"].(string)
		turns = append(turns, TranscriptionTurn{ID: normalizeID(td["id"]), Type: turnType, Text: text})
	}

	id := dataID
	if v, ok := record["id"]; ok {
		id = v
	}
	return &CallTranscription{Meta: meta, CallID: normalizeID(id), Turns: turns}, nil
}
