// Package models contains GORM-specific persistence models that map to
// database tables. They are kept separate from the domain entities so the
// domain layer stays free of ORM concerns.
//
// Structure:
//   - base.go: shared persistence fields (BaseModel, AggregateModel, TenantAggregateModel)
//   - ledger.go: open-item ledger models (invoices, payments, credit notes,
//     bank transactions, dunning records)
//
// Each model carries ToDomain/FromDomain mappers; repositories never hand a
// model type across a package boundary.
package models
