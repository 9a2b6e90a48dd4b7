package service

import (
	"fmt"
	"time"
)

// Status tracks a deployment record through its lifecycle. A record starts as
// success or failed, turns modified once a rollback pass removes part of it,
// and ends rolled-back when nothing remains.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusModified   Status = "modified"
	StatusRolledBack Status = "rolled-back"
)

// AttributeDescriptor is one column as produced by the diagram parser.
type AttributeDescriptor struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsPrimaryKey bool   `json:"isPrimaryKey,omitempty"`
	IsForeignKey bool   `json:"isForeignKey,omitempty"`
}

// EntityDescriptor is one table as produced by the diagram parser.
type EntityDescriptor struct {
	Name              string                `json:"name"`
	DisplayName       string                `json:"displayName,omitempty"`
	PrimaryColumnName string                `json:"primaryColumnName,omitempty"`
	Attributes        []AttributeDescriptor `json:"attributes"`
}

// RelationshipDescriptor is one association: FromEntity is the "one" side,
// ToEntity the "many" side.
type RelationshipDescriptor struct {
	FromEntity string `json:"fromEntity"`
	ToEntity   string `json:"toEntity"`
}

// ChoiceOption is one value/label pair of a shared option set.
type ChoiceOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// GlobalChoiceDescriptor is one shared option set to create or reuse.
type GlobalChoiceDescriptor struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName,omitempty"`
	Options     []ChoiceOption `json:"options"`
}

// PublisherSpec names the publisher a deployment runs under.
type PublisherSpec struct {
	UniqueName   string `json:"uniqueName"`
	FriendlyName string `json:"friendlyName,omitempty"`
	Prefix       string `json:"prefix"`
}

// SolutionSpec names the solution container a deployment fills.
type SolutionSpec struct {
	UniqueName   string `json:"uniqueName"`
	FriendlyName string `json:"friendlyName,omitempty"`
}

// DeploymentSpec is the full input of one deployment: the parsed diagram
// descriptors plus publisher/solution coordinates. CDMEntities maps descriptor
// names to pre-existing platform tables that must be referenced, not created.
type DeploymentSpec struct {
	Publisher     PublisherSpec            `json:"publisher"`
	Solution      SolutionSpec             `json:"solution"`
	Entities      []EntityDescriptor       `json:"entities"`
	Relationships []RelationshipDescriptor `json:"relationships,omitempty"`
	GlobalChoices []GlobalChoiceDescriptor `json:"globalChoices,omitempty"`
	CDMEntities   map[string]string        `json:"cdmEntities,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// SolutionInfo records the remote coordinates a deployment ran under; rollback
// needs them to find and remove the container objects.
type SolutionInfo struct {
	PublisherID         string `json:"publisherId"`
	PublisherUniqueName string `json:"publisherUniqueName"`
	Prefix              string `json:"prefix"`
	SolutionID          string `json:"solutionId"`
	SolutionUniqueName  string `json:"solutionUniqueName"`
}

// RelationshipRecord is one created association in the rollback manifest.
// SchemaName is recorded verbatim at creation time; legacy records imported
// from the "from->to" map form may lack it, in which case rollback re-derives
// the name and falls back to the reversed ordering.
type RelationshipRecord struct {
	FromEntity string `json:"fromEntity"`
	ToEntity   string `json:"toEntity"`
	SchemaName string `json:"schemaName,omitempty"`
}

// Key identifies a relationship across manifest and rollback history.
func (r RelationshipRecord) Key() string {
	if r.SchemaName != "" {
		return r.SchemaName
	}
	return fmt.Sprintf("%s->%s", r.FromEntity, r.ToEntity)
}

// ChoiceRecord is one created shared option set in the rollback manifest.
type ChoiceRecord struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// RollbackData is the manifest of exactly what a deployment created on the
// platform. It is built from what succeeded, never from what was requested,
// and is the sole input rollback consults.
type RollbackData struct {
	CustomEntities       []string             `json:"customEntities"`
	CDMEntities          []string             `json:"cdmEntities,omitempty"`
	Relationships        []RelationshipRecord `json:"relationships"`
	GlobalChoicesCreated []ChoiceRecord       `json:"globalChoicesCreated"`
}

// IsEmpty reports whether nothing remains to roll back.
func (d RollbackData) IsEmpty() bool {
	return len(d.CustomEntities) == 0 &&
		len(d.CDMEntities) == 0 &&
		len(d.Relationships) == 0 &&
		len(d.GlobalChoicesCreated) == 0
}

// RollbackOptions selects component categories for one rollback pass.
type RollbackOptions struct {
	Relationships       bool `json:"relationships"`
	CustomEntities      bool `json:"customEntities"`
	CDMEntities         bool `json:"cdmEntities"`
	CustomGlobalChoices bool `json:"customGlobalChoices"`
	Solution            bool `json:"solution"`
	Publisher           bool `json:"publisher"`
}

// All returns options with every category selected.
func AllRollbackOptions() RollbackOptions {
	return RollbackOptions{
		Relationships:       true,
		CustomEntities:      true,
		CDMEntities:         true,
		CustomGlobalChoices: true,
		Solution:            true,
		Publisher:           true,
	}
}

// RollbackResults aggregates one rollback pass.
type RollbackResults struct {
	RelationshipsDeleted   int      `json:"relationshipsDeleted"`
	RelationshipsProcessed int      `json:"relationshipsProcessed"`
	EntitiesDeleted        int      `json:"entitiesDeleted"`
	GlobalChoicesDeleted   int      `json:"globalChoicesDeleted"`
	SolutionDeleted        bool     `json:"solutionDeleted"`
	PublisherDeleted       bool     `json:"publisherDeleted"`
	Errors                 []string `json:"errors,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`
	Summary                string   `json:"summary"`
}

// RollbackEntry is one completed rollback pass in a record's history. Data
// holds only what the pass actually removed; the filtering engine subtracts
// the union of these slices from the manifest on the next pass, so components
// a halted pass never reached stay removable.
type RollbackEntry struct {
	RollbackID string          `json:"rollbackId"`
	Timestamp  time.Time       `json:"timestamp"`
	Options    RollbackOptions `json:"rollbackOptions"`
	Data       RollbackData    `json:"rollbackData"`
	Results    RollbackResults `json:"rollbackResults"`
}

// DeploymentRecord is the durable history entry for one deployment.
type DeploymentRecord struct {
	DeploymentID string          `json:"deploymentId"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       Status          `json:"status"`
	SolutionInfo SolutionInfo    `json:"solutionInfo"`
	RollbackData RollbackData    `json:"rollbackData"`
	Rollbacks    []RollbackEntry `json:"rollbacks,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// DeployResult is what a deployment returns to its caller.
type DeployResult struct {
	DeploymentID         string   `json:"deploymentId"`
	Success              bool     `json:"success"`
	EntitiesCreated      int      `json:"entitiesCreated"`
	RelationshipsCreated int      `json:"relationshipsCreated"`
	RelationshipsFailed  int      `json:"relationshipsFailed"`
	GlobalChoicesCreated int      `json:"globalChoicesCreated"`
	Errors               []string `json:"errors,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
}

// RollbackRequest is the rollback entry point's input shape.
type RollbackRequest struct {
	DeploymentID string          `json:"deploymentId"`
	Options      RollbackOptions `json:"options"`
}

// RollbackResponse is the rollback entry point's output shape.
type RollbackResponse struct {
	Status     Status          `json:"status"`
	RollbackID string          `json:"rollbackId"`
	Results    RollbackResults `json:"results"`
	Summary    string          `json:"summary"`
}
