// Package core implements bulk roster import: turning delimited text into
// students, teachers, classes, subjects and parents.
//
// # Pipeline
//
// A run flows through these stages, one row at a time and in source order:
//
//  1. [Tokenizer] splits the source into header-keyed [RawRow] values,
//     dropping a BOM and repairing invalid UTF-8 on the way.
//  2. A [Validator] per kind checks every field and builds a typed [Record],
//     or a [RowError] listing every violation of the row.
//  3. A run-scoped [Resolver] turns descriptive references (parent name and
//     phone, class name, teacher email) into entity ids, creating parents on
//     demand.
//  4. The [IdentifierGenerator] verifies supplied admission numbers and
//     employee ids or generates new ones.
//  5. The entity is written through the [Store].
//  6. Secondary effects, such as login accounts, go to the [EffectQueue],
//     which runs them in bounded batches off the import path.
//
// [Importer.Import] drives the pipeline and returns an [ImportResult]; a bad
// row never stops the run. [Service] adds concurrency limits, timeouts and
// background runs with progress subscription for the HTTP and CLI layers.
//
// # Error Handling
//
// Technical errors are mapped to coded user messages with [MapError]:
//
//   - DB001-DB006: persistence (duplicates, constraints, connections)
//   - VAL001-VAL006: row validation
//   - FILE001-FILE005: source files
//   - IMP001-IMP006: import runs
package core
