// Package tenant scopes queries and rows to a fixed set of tenant identifiers.
//
// A Scope filters reads (Apply, SQL, GormScope), stamps inserts (Attach) and checks rows
// fetched by primary key (GuardRow), so a query that forgot its tenant filter still cannot
// leak another tenant's row.
package tenant
