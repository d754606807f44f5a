// Package ir provides the value types shared by every instkey package.
//
// ir imports nothing internal. Arc records, variant selections and the
// canonical JSON used for persisted key digests all live here so that the
// graph, instancing and store layers agree on one representation.
//
// Key design constraints:
//   - Arc and VariantSelection are comparable values (usable with ==)
//   - Canonical JSON has no floats; layer offsets are encoded as
//     shortest round-trip decimal strings
//   - All JSON tags use snake_case
package ir
