package model

import (
	"encoding/json"
	"time"
)

// FunctionType labels the kind of AI invocation recorded in a usage log.
type FunctionType string

const (
	FunctionSearch     FunctionType = "search"
	FunctionVerify     FunctionType = "verify"
	FunctionContribute FunctionType = "contribute"
	FunctionUpdate     FunctionType = "update"
)

// UsageLog is an append-only record of an AI-service invocation.
type UsageLog struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id,omitempty"`
	IPAddress           string          `json:"ip_address,omitempty"`
	FunctionType        FunctionType    `json:"function_type"`
	InputText           string          `json:"input_text,omitempty"`
	InputURL            string          `json:"input_url,omitempty"`
	InputTokens         int             `json:"input_tokens"`
	OutputTokens        int             `json:"output_tokens"`
	EstimatedCost       float64         `json:"estimated_cost"`
	Success             bool            `json:"success"`
	Confidence          *float64        `json:"confidence,omitempty"`
	Result              json.RawMessage `json:"result,omitempty"`
	PoliticianID        *string         `json:"politician_id,omitempty"`
	IsContributed       bool            `json:"is_contributed"`
	ContributedPolicyID *string         `json:"contributed_policy_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// UsageFilter scopes usage-log counts. Empty fields are ignored.
type UsageFilter struct {
	FunctionType FunctionType
	UserID       string
	IPAddress    string
	Since        time.Time
}
