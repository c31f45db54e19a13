// Package mutation edits capture dates as reversible transactions.
//
// A date edit touches three things that can fail independently: the date
// embedded in the file, the file's canonical path (which is derived from
// the date) and the index row. [Editor.EditDate] performs them in order,
// logging each completed file step in an undo log, and updates the row in
// an open index transaction:
//
//  1. write the new date into the file
//  2. rehash it and drop the thumbnail cached under the old hash
//  3. move it to YYYY/YYYY-MM-DD/<name for the new date>
//  4. update path, filename, date and hash in the transaction
//  5. after commit, remove source directories left empty
//
// If any step fails the undo log is replayed newest first and the
// transaction is rolled back. Undo failures are logged and reported in
// [EditError] but never replace the original error.
//
// [Editor.EditDates] runs the same steps for many records under one
// transaction and one undo log, so the batch commits entirely or not at
// all. An index backup is taken first.
package mutation
