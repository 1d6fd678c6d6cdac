package model

import "time"

// Budget identifies one budget on the budget service.
type Budget struct {
	LastModified time.Time
	ID           string
	Name         string
}

// Category is a selectable budget category, flattened out of its group.
type Category struct {
	ID        string
	Name      string
	GroupName string
}

// FullName renders the category with its group for display and search.
func (c Category) FullName() string {
	if c.GroupName == "" {
		return c.Name
	}
	return c.GroupName + " / " + c.Name
}
