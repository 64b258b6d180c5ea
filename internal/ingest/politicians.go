package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/policy-tracker/internal/model"
)

var fieldAliases = map[string]string{
	"biography": "bio",
	"photo_url": "avatar_url",
	"photo":     "avatar_url",
	"image_url": "avatar_url",
	"avatar":    "avatar_url",
}

// PoliticianUpdate is the UpdatePolitician response.
type PoliticianUpdate struct {
	Action         string   `json:"action"`
	PoliticianID   string   `json:"politician_id"`
	UpdatedFields  []string `json:"updated_fields"`
	RejectedFields []string `json:"rejected_fields,omitempty"`
	Message        string   `json:"message"`
}

// UpdatePolitician applies the allow-listed profile fields in fields.
// Unknown fields and values that fail validation are reported as rejected.
func (e *Engine) UpdatePolitician(ctx context.Context, ref PoliticianRef, fields map[string]any) (*PoliticianUpdate, error) {
	if ref.ID == "" && strings.TrimSpace(ref.Name) == "" {
		return nil, model.Invalid("", "Missing politician_id or politician_name")
	}
	if len(fields) == 0 {
		return nil, model.Invalid("", "Missing updates object")
	}

	pol, err := e.lookupPolitician(ctx, ref)
	if err != nil {
		return nil, err
	}

	var (
		patch    model.PoliticianPatch
		rejected []string
	)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field := key
		if canonical, ok := fieldAliases[key]; ok {
			field = canonical
		}
		if !e.applyField(ctx, &patch, field, fields[key]) {
			rejected = append(rejected, key)
		}
	}

	updated := patch.Fields()
	if len(updated) == 0 {
		return nil, model.Invalid("", "No valid fields to update")
	}
	if err := e.store.UpdatePolitician(ctx, pol.ID, patch); err != nil {
		return nil, eris.Wrapf(err, "ingest: update politician %s", pol.ID)
	}

	zap.L().Info("ingest: politician updated",
		zap.String("politician_id", pol.ID),
		zap.Strings("fields", updated),
		zap.Strings("rejected", rejected),
	)
	e.changed()
	return &PoliticianUpdate{
		Action:         ActionUpdated,
		PoliticianID:   pol.ID,
		UpdatedFields:  updated,
		RejectedFields: rejected,
		Message:        fmt.Sprintf("已更新 %d 個欄位", len(updated)),
	}, nil
}

func (e *Engine) applyField(ctx context.Context, patch *model.PoliticianPatch, field string, v any) bool {
	switch field {
	case "bio", "education_level", "slogan", "current_position":
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return false
		}
		s = strings.TrimSpace(s)
		switch field {
		case "bio":
			patch.Bio = &s
		case "education_level":
			patch.EducationLevel = &s
		case "slogan":
			patch.Slogan = &s
		default:
			patch.CurrentPosition = &s
		}
	case "experience", "education":
		list := ToList(v)
		if len(list) == 0 {
			return false
		}
		if field == "experience" {
			patch.Experience = list
		} else {
			patch.Education = list
		}
	case "birth_year":
		y, ok := toInt(v)
		if !ok || !model.ValidBirthYear(y) {
			return false
		}
		patch.BirthYear = &y
	case "avatar_url":
		s, ok := v.(string)
		s = strings.TrimSpace(s)
		if !ok || e.avatar == nil || !e.avatar.Accept(ctx, s) {
			return false
		}
		patch.AvatarURL = &s
	default:
		return false
	}
	return true
}

// ToList accepts a list of strings or a single string separated by commas
// (either width), 、 or newlines. Items are trimmed and empties dropped.
func ToList(v any) []string {
	var parts []string
	switch t := v.(type) {
	case []string:
		parts = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.FieldsFunc(t, isListSep)
	}

	out := []string{}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isListSep(r rune) bool {
	switch r {
	case '、', '\n':
		return true
	}
	return width.LookupRune(r).Narrow() == ',' || r == ','
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
