package entity

import "time"

// Node is the project a node request targets. The core only consumes its
// contributor roles; project content is a collaborator concern.
type Node struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatorID string `json:"creator_id"`
	IsPublic  bool   `json:"is_public"`

	ContributorIDs []string `json:"contributor_ids"`
	AdminIDs       []string `json:"admin_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasContributor reports whether the user contributes to the node
func (n *Node) HasContributor(userID string) bool {
	for _, id := range n.ContributorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasAdmin reports whether the user administers the node
func (n *Node) HasAdmin(userID string) bool {
	for _, id := range n.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
