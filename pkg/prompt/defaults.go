package prompt

const DefaultSummarizePrompt = `
# Task Context
You are a highly detail-oriented assistant responsible for creating a complete and comprehensive summary based only on the information provided below.

# Background Data
-- Data --
entity_name: {{ .EntityName }}
entity_descriptions:
{{- range .DescriptionList }}
- {{ oneline . }}
{{- end }}

# Detailed Task Description & Rules
- The input consists of multiple descriptive segments related to the same entity or relationship.
- Merge them into one unified description that includes every relevant detail from the segments.
- Do not leave out details about actions, events, quantities, frequencies, or timelines.
- If the descriptions overlap, merge them into a single coherent narrative.
- If there are contradictions, include both versions clearly.
- Use third person at all times and explicitly include entity names to preserve full context.
- Only use the information given in the segments. Do not add external knowledge.

# Output Formatting
- Return plain text only. Do not use markdown, lists, bullet points, or meta-comments.
- Output only the final comprehensive description.
`

const DefaultExtractPrompt = `
# Task Context
You are tasked with extracting structured entity and relationship information from the provided text. Capture all details explicitly present in the text.

# Background Data
- Entity_types: [{{ join .Types ", " }}]
- Document_name: [{{ .DocumentName }}]

# Detailed Task Description & Rules
## Entity Extraction
1. Identify all entities of the specified types.
2. For each entity, extract:
   - entity_name: the name of the entity, written in ALL CAPITAL LETTERS.
   - entity_type: one of the provided types.
   - entity_description: a comprehensive description of all attributes, roles, activities and events of the entity in the text.

## Relationship Extraction
1. From the identified entities, determine all clear relationships between pairs of entities.
2. For each relationship, extract:
   - source_entity: name of the source entity, as extracted above.
   - target_entity: name of the target entity, as extracted above.
   - relationship_description: how and why the entities are related, based strictly on the text.
   - relationship_strength: a numeric score (0.0 to 1.0) indicating the strength of the relationship.

# Text
{{ .Text }}

# Output Formatting
Return a single valid JSON object:
{
  "entities": [{"entity_name": "string", "entity_type": "string", "entity_description": "string"}],
  "relationships": [{"source_entity": "string", "target_entity": "string", "relationship_description": "string", "relationship_strength": 0.5}]
}
Use empty arrays when nothing is found. Do not include any text outside of the JSON.
`

const DefaultReportPrompt = `
# Task Context
You are an analyst writing a report about one community of a knowledge graph. The community is a group of closely related entities.

# Background Data
Community: {{ .CommunityID }} (level {{ .Level }})

Entities
id,title,description,degree
{{- range .Entities }}
{{ .ID }},{{ .Title }},{{ oneline .Description }},{{ .Degree }}
{{- end }}
{{ if .Relationships }}
Relationships
id,source,target,description,weight
{{- range .Relationships }}
{{ .ID }},{{ .Source }},{{ .Target }},{{ oneline .Description }},{{ .Weight }}
{{- end }}
{{ end }}
# Detailed Task Description & Rules
- title: a short, specific name for the community that mentions its most important entities.
- summary: an executive summary of the community structure, how the entities relate and the most significant information about them.
- rating: a float between 0 and 10 describing the impact and importance of the community.
- rating_explanation: one sentence explaining the rating.
- findings: 5 to 10 key insights, each with a short summary and a multi-sentence explanation grounded in the data above.
- Only use the information given above. Do not add external knowledge.

# Output Formatting
Return a single valid JSON object:
{
  "title": "string",
  "summary": "string",
  "rating": 0.0,
  "rating_explanation": "string",
  "findings": [{"summary": "string", "explanation": "string"}]
}
`
