// Package incident provides the business boundary for warden's incident lifecycle.
// It defines the Service (creation from alert batches, field updates, timeline appends,
// dashboard stats), the Store interface (persistence), and the domain models.
package incident
