package graph

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/OFFIS-RIT/graphrag/internal/util"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
)

type extractEntity struct {
	EntityName        string `json:"entity_name" jsonschema_description:"Name of the entity, all letters capitalized"`
	EntityType        string `json:"entity_type" jsonschema_description:"One of the provided entity types"`
	EntityDescription string `json:"entity_description" jsonschema_description:"Comprehensive description of the entity's attributes, activities and information provided by the source."`
}

type extractRelationship struct {
	SourceEntity            string  `json:"source_entity" jsonschema_description:"Name of the source entity, as identified in step 1"`
	TargetEntity            string  `json:"target_entity" jsonschema_description:"Name of the target entity, as identified in step 1"`
	RelationshipDescription string  `json:"relationship_description" jsonschema_description:"Explanation as to why you think the source entity and the target entity are related to each other"`
	RelationshipStrength    float64 `json:"relationship_strength" jsonschema_description:"A numeric score indicating strength of the relationship between the source entity and target entity"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text document"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text document"`
}

// ExtractedEntity is one entity mention of a single text unit.
type ExtractedEntity struct {
	Title       string
	Type        string
	Description string
}

// ExtractedRelationship is one relationship mention of a single text unit.
// Source and Target are entity titles.
type ExtractedRelationship struct {
	Source      string
	Target      string
	Description string
	Weight      float64
}

// Extraction is the parsed output of one extraction call.
type Extraction struct {
	TextUnitID    string
	Entities      []ExtractedEntity
	Relationships []ExtractedRelationship
}

func extractFromUnit(
	ctx context.Context,
	unit common.TextUnit,
	docTitle string,
	entityTypes []string,
	tmpl *template.Template,
	client ai.GraphAIClient,
) (Extraction, error) {
	p, err := prompt.Render(tmpl, prompt.ExtractInput{
		Text:         unit.Text,
		DocumentName: docTitle,
		EntityTypes:  entityTypes,
	})
	if err != nil {
		return Extraction{}, util.Permanent(err)
	}

	var res extractResponse
	err = client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a provided document.",
		p,
		&res,
	)
	if err != nil {
		return Extraction{}, err
	}

	return toExtraction(unit.ID, res), nil
}

func toExtraction(unitID string, res extractResponse) Extraction {
	out := Extraction{
		TextUnitID:    unitID,
		Entities:      make([]ExtractedEntity, 0, len(res.Entities)),
		Relationships: make([]ExtractedRelationship, 0, len(res.Relationships)),
	}
	for _, e := range res.Entities {
		title := strings.TrimSpace(e.EntityName)
		if title == "" {
			continue
		}
		out.Entities = append(out.Entities, ExtractedEntity{
			Title:       title,
			Type:        strings.TrimSpace(e.EntityType),
			Description: strings.TrimSpace(e.EntityDescription),
		})
	}
	for _, r := range res.Relationships {
		if strings.TrimSpace(r.SourceEntity) == "" || strings.TrimSpace(r.TargetEntity) == "" {
			continue
		}
		out.Relationships = append(out.Relationships, ExtractedRelationship{
			Source:      strings.TrimSpace(r.SourceEntity),
			Target:      strings.TrimSpace(r.TargetEntity),
			Description: strings.TrimSpace(r.RelationshipDescription),
			Weight:      r.RelationshipStrength,
		})
	}
	return out
}

func (x Extraction) String() string {
	return fmt.Sprintf("extraction(%s: %d entities, %d relationships)",
		x.TextUnitID, len(x.Entities), len(x.Relationships))
}
