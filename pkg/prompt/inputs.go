package prompt

import "strings"

// DefaultEntityTypes is used by extraction when no types are configured.
var DefaultEntityTypes = []string{"ORGANIZATION", "PERSON", "GEO", "EVENT"}

// SummarizeInput feeds the description summarization prompt. EntityName
// is the entity title, or "SOURCE -> TARGET" for relationships.
type SummarizeInput struct {
	EntityName      string
	DescriptionList []string
}

func (in SummarizeInput) Validate() error {
	if strings.TrimSpace(in.EntityName) == "" {
		return missing("entity_name")
	}
	if in.DescriptionList == nil {
		return missing("description_list")
	}
	return nil
}

// ReportEntity is one entity row of a community report prompt.
type ReportEntity struct {
	ID          string
	Title       string
	Description string
	Degree      int
}

// ReportRelationship is one relationship row of a community report prompt.
type ReportRelationship struct {
	ID          string
	Source      string
	Target      string
	Description string
	Weight      float64
}

// ReportInput feeds the community report prompt.
type ReportInput struct {
	CommunityID   string
	Level         int
	Entities      []ReportEntity
	Relationships []ReportRelationship
}

func (in ReportInput) Validate() error {
	if in.CommunityID == "" {
		return missing("community_id")
	}
	if len(in.Entities) == 0 {
		return missing("entities")
	}
	return nil
}

// ExtractInput feeds the entity and relationship extraction prompt.
type ExtractInput struct {
	Text         string
	DocumentName string
	EntityTypes  []string
}

func (in ExtractInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return missing("text")
	}
	return nil
}

// Types returns the configured entity types or DefaultEntityTypes.
func (in ExtractInput) Types() []string {
	if len(in.EntityTypes) == 0 {
		return DefaultEntityTypes
	}
	return in.EntityTypes
}

// NewSummarize returns the description summarization builder.
func NewSummarize(inline, path string) *Builder {
	return New("summarize_descriptions", inline, path, DefaultSummarizePrompt)
}

// NewReport returns the community report builder.
func NewReport(inline, path string) *Builder {
	return New("community_report", inline, path, DefaultReportPrompt)
}

// NewExtract returns the extraction builder.
func NewExtract(inline, path string) *Builder {
	return New("extract_graph", inline, path, DefaultExtractPrompt)
}
