package tenant

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	database "github.com/blackcatacademy/blackcat-database"
)

// GormScope returns a gorm scope that filters by column, for use with db.Scopes.
// An invalid column is reported through the gorm error chain.
func (s Scope) GormScope(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(s.ids) == 0 {
			_ = db.AddError(ErrEmptyScope)
			return db
		}
		name, err := database.ValidateIdentifier(column)
		if err != nil {
			_ = db.AddError(err)
			return db
		}

		col := clause.Column{Name: name}
		if i := strings.LastIndex(name, "."); i >= 0 {
			col = clause.Column{Table: name[:i], Name: name[i+1:]}
		}

		return db.Where(clause.IN{Column: col, Values: s.IDs()})
	}
}
