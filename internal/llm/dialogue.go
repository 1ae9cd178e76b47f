// Meeting dialogue: one Haiku call per conversation between two agents.
// The reply is shape-checked against a JSON schema before decoding; the deal
// proposal inside it is decoded leniently and left for the caller to vet.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Profile is the public face of an agent shown to the model.
type Profile struct {
	ID          string
	Name        string
	Title       string
	Role        string // PRODUCER or CONSUMER
	Personality string
	Mood        float64
	Money       float64
}

// ConversationRequest is everything the model sees about one meeting.
type ConversationRequest struct {
	A, B     Profile
	Location string // tile label where they met
	Time     string // HH:MM
	History  string // bounded summary of earlier meetings, may be empty
}

// Business reports whether the pair is a seller and a buyer.
func (r ConversationRequest) Business() bool {
	return r.A.Role != r.B.Role
}

// Line is one line of generated dialogue.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Proposal is a deal as reported by the model. Amount is NaN when the model
// sent something other than a number.
type Proposal struct {
	Success bool
	Amount  float64
	PayerID string
	PayeeID string
	Item    string
}

// Conversation is the decoded reply.
type Conversation struct {
	Lines    []Line
	Proposal *Proposal
}

const replySchema = `{
  "type": "object",
  "required": ["dialogue"],
  "properties": {
    "dialogue": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["speaker", "text"],
        "properties": {
          "speaker": {"type": "string"},
          "text": {"type": "string"}
        }
      }
    },
    "transaction": {"type": ["object", "null"]}
  }
}`

var compiledReplySchema = jsonschema.MustCompileString("dialogue-reply.json", replySchema)

// Dialogue is the conversation collaborator backed by Haiku.
type Dialogue struct {
	Client   *Client
	Language string // language the characters speak, e.g. "Simplified Chinese"
}

// NewDialogue creates a dialogue generator. A nil client yields an error on
// every call, which the simulation turns into a neutral greeting.
func NewDialogue(client *Client, language string) *Dialogue {
	if language == "" {
		language = "English"
	}
	return &Dialogue{Client: client, Language: language}
}

// Converse generates a 3–6 turn conversation for the pair.
func (d *Dialogue) Converse(ctx context.Context, req ConversationRequest) (*Conversation, error) {
	if d == nil || !d.Client.Enabled() {
		return nil, fmt.Errorf("LLM client not configured")
	}

	text, err := d.Client.Complete(ctx, buildSystemPrompt(d.Language), buildUserPrompt(req), 1200)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	return ParseConversation(text)
}

func buildSystemPrompt(language string) string {
	return fmt.Sprintf(`You are the dialogue engine for a small-town business simulation.
Write a natural conversation in %s between two townspeople who just bumped into each other.
Dialogue must feel human: fragments, hesitation, and emotion are fine.
If the characters have met before, they acknowledge it.
Generate 3 to 6 turns in total.

Respond ONLY with a JSON object:
{
  "dialogue": [{"speaker": "<exact character name>", "text": "<line>"}],
  "transaction": {"success": true, "amount": 0, "buyerId": "<id>", "sellerId": "<id>", "item": "<short item name>"}
}
Include "transaction" only when a deal was made.`, language)
}

func buildUserPrompt(req ConversationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Time: %s\nLocation: %s\n", req.Time, req.Location)
	if req.History != "" {
		fmt.Fprintf(&b, "Previous meetings:\n%s\n", req.History)
	} else {
		b.WriteString("Previous meetings: none. This is their first meeting today.\n")
	}

	b.WriteString("\nCharacters:\n")
	for i, p := range []Profile{req.A, req.B} {
		fmt.Fprintf(&b, "%d. %s [id %s] (%s, %s)\n   Traits: %s\n   Mood %.0f/100\n",
			i+1, p.Name, p.ID, p.Title, p.Role, p.Personality, p.Mood)
	}

	b.WriteString("\nScenario:\n")
	if !req.Business() {
		b.WriteString("Casual conversation about daily life, the weather, or town gossip. No business transaction is possible.\n")
		return b.String()
	}

	seller, buyer := req.A, req.B
	if seller.Role != "PRODUCER" {
		seller, buyer = buyer, seller
	}
	fmt.Fprintf(&b, `Business negotiation.
Seller: %s (%s). Goal: sell high-margin products or services, tailored to the trade.
Buyer: %s, holding ¥%.0f. Goal: be skeptical but open to value; push back on price, quality, or need before agreeing or refusing.
If the buyer is convinced and can afford it, report the deal with buyerId %q and sellerId %q.
Keep amounts realistic: a meal 50-500, design or IT work 2000-20000, financial products 10000-100000.
`, seller.Name, seller.Title, buyer.Name, buyer.Money, buyer.ID, seller.ID)

	return b.String()
}

// ParseConversation extracts and validates the JSON reply from model text.
func ParseConversation(text string) (*Conversation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	raw := []byte(text[start : end+1])

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	if err := compiledReplySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("reply schema: %w", err)
	}

	var wire struct {
		Dialogue    []Line         `json:"dialogue"`
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	return &Conversation{
		Lines:    wire.Dialogue,
		Proposal: decodeProposal(wire.Transaction),
	}, nil
}

// decodeProposal reads the deal fields without trusting their types.
// Both buyerId/sellerId and payerId/payeeId spellings are accepted.
func decodeProposal(m map[string]any) *Proposal {
	if m == nil {
		return nil
	}
	p := &Proposal{Amount: math.NaN()}
	p.Success, _ = m["success"].(bool)
	if v, ok := m["amount"].(float64); ok {
		p.Amount = v
	}
	p.PayerID = firstString(m, "payerId", "buyerId")
	p.PayeeID = firstString(m, "payeeId", "sellerId")
	p.Item, _ = m["item"].(string)
	return p
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
