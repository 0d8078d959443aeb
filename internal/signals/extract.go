package signals

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/utils"
)

// extractEntities runs every enabled entity type against the raw payload
// and returns the deduplicated (type, value) rows, creating them on first
// sight. A malformed regular expression disables that type for the run.
func extractEntities(db *gorm.DB, projectID uint, raw database.JSONB) []database.Entity {
	var types []database.EntityType
	if err := db.Where("project_id = ? AND enabled = ?", projectID, true).Find(&types).Error; err != nil {
		log.Printf("Failed to load entity types: %v", err)
		return nil
	}

	var out []database.Entity
	seen := make(map[string]bool)
	for _, et := range types {
		values := lookupPath(map[string]interface{}(raw), strings.Split(et.JSONPath, "."))
		var re *regexp.Regexp
		if et.RegularExpression != "" {
			var err error
			re, err = regexp.Compile(et.RegularExpression)
			if err != nil {
				log.Printf("Entity type %s has a bad pattern: %v", et.Name, err)
				continue
			}
		}
		for _, v := range values {
			text := stringify(v)
			if text == "" {
				continue
			}
			matches := []string{text}
			if re != nil {
				matches = re.FindAllString(text, -1)
			}
			for _, m := range matches {
				key := fmt.Sprintf("%d|%s", et.ID, m)
				if seen[key] {
					continue
				}
				seen[key] = true
				entity, err := findOrCreateEntity(db, projectID, et.ID, m)
				if err != nil {
					log.Printf("Failed to persist entity %s=%s: %v", et.Name, utils.EscapeForLogging(m, 120), err)
					continue
				}
				out = append(out, *entity)
			}
		}
	}
	return out
}

// lookupPath walks a dotted path through nested maps. Arrays fan the walk
// out across their elements.
func lookupPath(v interface{}, path []string) []interface{} {
	if len(path) == 0 {
		return []interface{}{v}
	}
	switch t := v.(type) {
	case map[string]interface{}:
		next, ok := t[path[0]]
		if !ok {
			return nil
		}
		return lookupPath(next, path[1:])
	case []interface{}:
		var out []interface{}
		for _, elem := range t {
			out = append(out, lookupPath(elem, path)...)
		}
		return out
	default:
		return nil
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%f", t), ".000000")
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

func findOrCreateEntity(db *gorm.DB, projectID, typeID uint, value string) (*database.Entity, error) {
	var entity database.Entity
	err := db.Where("project_id = ? AND entity_type_id = ? AND value = ?", projectID, typeID, value).
		First(&entity).Error
	if err == gorm.ErrRecordNotFound {
		entity = database.Entity{ProjectID: projectID, EntityTypeID: typeID, Value: value}
		if err := db.Create(&entity).Error; err != nil {
			return nil, err
		}
		return &entity, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
