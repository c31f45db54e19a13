// Package health classifies the structure of an index file before it is
// opened.
//
// [Check] compares the photos table against the canonical column set and
// returns a [Report] whose status is one of healthy, missing, corrupted,
// missing_columns, extra_columns or mixed_schema, together with the
// affected column names and the actions an operator may take. Corruption
// is never repaired silently.
//
// [Migrate] is the explicit repair for missing columns: it only adds
// columns, tables and indices. Extra columns are left in place.
package health
