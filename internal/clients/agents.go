package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-messaging-gateway/internal/markdown"
	"github.com/tbourn/go-messaging-gateway/internal/observability"
)

const agentService = "agent-service"

// NoAgentReplyFormat is the echo sent when no Agent Service is configured.
const NoAgentReplyFormat = "No agent is available right now; you said: %s\n(Try again later or use /help)"

// ReplyKind tags the shape of an agent reply.
type ReplyKind int

const (
	// PlainText is a reply given as a JSON string.
	PlainText ReplyKind = iota + 1
	// Structured is a reply given as any other JSON value.
	Structured
)

// Subtask is one entry of a structured reply's tasks_output list.
type Subtask struct {
	Raw     string
	Summary string
}

// StructuredReply holds the recognized fields of a structured reply. Absent
// or non-string fields are left empty.
type StructuredReply struct {
	Raw         string
	Text        string
	Content     string
	TasksOutput []Subtask
}

// Reply is the decoded "reply" member of an Agent Service answer.
type Reply struct {
	Kind       ReplyKind
	Text       string           // set for PlainText
	Structured *StructuredReply // set for Structured
	source     json.RawMessage
}

// UnmarshalJSON decodes a string as PlainText and anything else as Structured.
func (r *Reply) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = Reply{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		r.Kind = PlainText
		return json.Unmarshal(b, &r.Text)
	}
	r.Kind = Structured
	r.source = append(json.RawMessage(nil), b...)
	r.Structured = &StructuredReply{}
	if b[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	r.Structured.Raw = jsonString(fields["raw"])
	r.Structured.Text = jsonString(fields["text"])
	r.Structured.Content = jsonString(fields["content"])
	var tasks []map[string]json.RawMessage
	if json.Unmarshal(fields["tasks_output"], &tasks) == nil {
		for _, t := range tasks {
			r.Structured.TasksOutput = append(r.Structured.TasksOutput, Subtask{
				Raw:     jsonString(t["raw"]),
				Summary: jsonString(t["summary"]),
			})
		}
	}
	return nil
}

// String resolves the reply text. Structured replies use the first non-empty
// of raw, text, content, tasks_output[0].raw, tasks_output[0].summary, and
// otherwise the whole value as compact JSON.
func (r Reply) String() string {
	switch r.Kind {
	case PlainText:
		return r.Text
	case Structured:
		s := r.Structured
		if s != nil {
			for _, v := range []string{s.Raw, s.Text, s.Content} {
				if v != "" {
					return v
				}
			}
			if len(s.TasksOutput) > 0 {
				if s.TasksOutput[0].Raw != "" {
					return s.TasksOutput[0].Raw
				}
				if s.TasksOutput[0].Summary != "" {
					return s.TasksOutput[0].Summary
				}
			}
		}
		return compactJSON(r.source)
	default:
		return ""
	}
}

func jsonString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

// AgentService asks the external Agent Service for replies.
type AgentService struct {
	base string
	hc   *http.Client
}

// NewAgentService returns a client for base. An empty base makes Ask answer
// with a local echo.
func NewAgentService(base string, hc *http.Client) *AgentService {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &AgentService{base: strings.TrimRight(base, "/"), hc: hc}
}

// Configured reports whether a remote agent endpoint is set.
func (a *AgentService) Configured() bool { return a.base != "" }

type askRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Ask returns the agent's reply to query as plain text. HTTP failures are
// returned as *RemoteServiceError.
func (a *AgentService) Ask(ctx context.Context, userID, query string) (string, error) {
	if a.base == "" {
		observability.Logger(ctx).Info().Msg("agent service not configured, echoing")
		return fmt.Sprintf(NoAgentReplyFormat, query), nil
	}

	const op = "respond"
	ctx, span := otel.Tracer("clients/AgentService").Start(ctx, "Ask",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	status, body, err := doJSON(ctx, a.hc, http.MethodPost, a.base+"/api/respond", askRequest{UserID: userID, Query: query})
	if err != nil || !isSuccess(status) {
		rerr := remoteErr(agentService, op, status, body, err)
		span.RecordError(rerr)
		observability.ObserveCall(agentService, op, rerr)
		return "", rerr
	}
	observability.ObserveCall(agentService, op, nil)

	var envelope struct {
		Reply *Reply `json:"reply"`
	}
	text := ""
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Reply != nil && envelope.Reply.Kind != 0 {
		text = envelope.Reply.String()
	} else {
		text = compactJSON(body)
	}
	return markdown.ToText(text), nil
}
