// Package schedule keeps one daily warm window per slot for a heating valve.
//
// Each slot persists a single byte: the anchor time in units of the
// granularity. The anchor is the moment the room should be warm. The
// effective window opens PreWarm minutes earlier and stays open for PreWarm
// plus the policy's current on-duration, so changing the policy moves every
// off time immediately without rewriting storage.
//
// Windows are minutes after local midnight and may wrap past midnight, in
// which case Off is numerically below On.
package schedule
