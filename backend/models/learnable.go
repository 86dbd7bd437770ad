package models

import (
	"fmt"

	"gorm.io/gorm"
)

// ParentKind is the closed set of learning entities a test can attach to.
type ParentKind string

const (
	ParentCourse   ParentKind = "course"
	ParentBootcamp ParentKind = "bootcamp"
	ParentProgram  ParentKind = "program"
	ParentWorkshop ParentKind = "workshop"
)

func (k ParentKind) Valid() bool {
	switch k {
	case ParentCourse, ParentBootcamp, ParentProgram, ParentWorkshop:
		return true
	}
	return false
}

// Learnable is what the assessment core needs from a parent entity.
type Learnable interface {
	LearnableTitle() string
	IsPublished() bool
}

type Course struct {
	gorm.Model
	Title       string
	Description string
	Published   bool `gorm:"default:true"`
}

func (c Course) LearnableTitle() string { return c.Title }
func (c Course) IsPublished() bool      { return c.Published }

type Bootcamp struct {
	gorm.Model
	Title       string
	Description string
	Published   bool `gorm:"default:true"`
}

func (b Bootcamp) LearnableTitle() string { return b.Title }
func (b Bootcamp) IsPublished() bool      { return b.Published }

type Program struct {
	gorm.Model
	Title       string
	Description string
	Published   bool `gorm:"default:true"`
}

func (p Program) LearnableTitle() string { return p.Title }
func (p Program) IsPublished() bool      { return p.Published }

type Workshop struct {
	gorm.Model
	Title       string
	Description string
	Published   bool `gorm:"default:true"`
}

func (w Workshop) LearnableTitle() string { return w.Title }
func (w Workshop) IsPublished() bool      { return w.Published }

// LoadParents loads every entity of one kind in a single query, keyed by id.
// Missing ids are simply absent from the map.
func LoadParents(db *gorm.DB, kind ParentKind, ids []uint) (map[uint]Learnable, error) {
	out := make(map[uint]Learnable, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	switch kind {
	case ParentCourse:
		var rows []Course
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ID] = r
		}
	case ParentBootcamp:
		var rows []Bootcamp
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ID] = r
		}
	case ParentProgram:
		var rows []Program
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ID] = r
		}
	case ParentWorkshop:
		var rows []Workshop
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ID] = r
		}
	default:
		return nil, fmt.Errorf("unknown parent kind %q", kind)
	}
	return out, nil
}

// ResolveParent loads the parent entity behind a (kind, id) pair. The switch
// is exhaustive over ParentKind; an unknown kind is a caller bug.
func ResolveParent(db *gorm.DB, kind ParentKind, id uint) (Learnable, error) {
	switch kind {
	case ParentCourse:
		var c Course
		if err := db.First(&c, id).Error; err != nil {
			return nil, err
		}
		return c, nil
	case ParentBootcamp:
		var b Bootcamp
		if err := db.First(&b, id).Error; err != nil {
			return nil, err
		}
		return b, nil
	case ParentProgram:
		var p Program
		if err := db.First(&p, id).Error; err != nil {
			return nil, err
		}
		return p, nil
	case ParentWorkshop:
		var w Workshop
		if err := db.First(&w, id).Error; err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown parent kind %q", kind)
	}
}
