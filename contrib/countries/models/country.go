// Package models holds the country catalogue's entities.
package models

import "time"

// Country is one catalogue entry. ID is generated by the source store and
// reused verbatim by the destination while both are written.
type Country struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Code       string    `json:"code" gorm:"uniqueIndex;size:2;not null"`
	Name       string    `json:"name" gorm:"not null"`
	Region     string    `json:"region,omitempty"`
	Population int64     `json:"population,omitempty"`
	UpdatedAt  time.Time `json:"-" gorm:"autoUpdateTime"`
}

// TableName keeps the relational table and the SurrealDB table aligned.
func (Country) TableName() string {
	return Table
}

const Table = "countries"

// Patch is a partial update. Nil fields are left as they are.
type Patch struct {
	Name       *string `json:"name,omitempty"`
	Region     *string `json:"region,omitempty"`
	Population *int64  `json:"population,omitempty"`
}

// Apply writes the set fields of p into c.
func (p Patch) Apply(c *Country) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Region != nil {
		c.Region = *p.Region
	}
	if p.Population != nil {
		c.Population = *p.Population
	}
}
