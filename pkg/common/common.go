package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Document is a raw input document before chunking.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// TextUnit represents a contiguous, token-limited segment of a document.
// Text units are the provenance of every entity and relationship mention.
type TextUnit struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	Tokens     int    `json:"n_tokens"`
}

// Entity represents a node in the graph. An entity can be an organization,
// person, location, or any other relevant concept.
//
// DescriptionList keeps every raw description in extraction order until the
// summarizer collapses it into a single element. TextUnitIDs has set
// semantics but keeps insertion order so output is stable across runs.
type Entity struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Type            string   `json:"type"`
	DescriptionList []string `json:"description_list"`
	TextUnitIDs     []string `json:"text_unit_ids"`
	Degree          int      `json:"degree"`
}

// Description returns the entity description as a single string.
func (e Entity) Description() string {
	return strings.Join(e.DescriptionList, "\n")
}

// Relationship represents an undirected edge between two entities.
// SourceID and TargetID are stored in the order of the first mention, the
// identity of the edge is the unordered pair.
type Relationship struct {
	ID              string   `json:"id"`
	SourceID        string   `json:"source_id"`
	TargetID        string   `json:"target_id"`
	DescriptionList []string `json:"description_list"`
	TextUnitIDs     []string `json:"text_unit_ids"`
	Weight          float64  `json:"weight"`
}

// Description returns the relationship description as a single string.
func (r Relationship) Description() string {
	return strings.Join(r.DescriptionList, "\n")
}

// Community is a set of entities at one level of the hierarchy.
// Level 0 is the root partition, higher levels subdivide their parent.
type Community struct {
	ID        string   `json:"id"`
	Level     int      `json:"level"`
	EntityIDs []string `json:"entity_ids"`
	ParentID  *string  `json:"parent_community_id"`
}

// Finding is a single insight of a community report.
type Finding struct {
	Summary     string `json:"summary" jsonschema_description:"A short summary of the insight"`
	Explanation string `json:"explanation" jsonschema_description:"A detailed explanation of the insight grounded in the provided data"`
}

// CommunityReport is the LLM generated description of a community.
type CommunityReport struct {
	CommunityID       string    `json:"community_id"`
	Level             int       `json:"level"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary"`
	Rating            float64   `json:"rating"`
	RatingExplanation string    `json:"rating_explanation"`
	Findings          []Finding `json:"findings"`
}

// NormalizeKey standardizes names and types before hashing or comparing.
func NormalizeKey(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.Join(strings.Fields(value), " ")
	value = strings.Trim(value, "\"'")
	return strings.ToUpper(value)
}

// EntityID returns the stable id of an entity, derived from its normalized
// title and type.
func EntityID(title, entityType string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(title) + "|" + NormalizeKey(entityType)))
	return hex.EncodeToString(sum[:])
}

// RelationshipID returns the stable id of the unordered entity pair.
func RelationshipID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:])
}

// AppendUnique appends values not yet present in dst, keeping order.
func AppendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
