// Package domain models AOI analysis requests and results.
//
// # Requests
//
// A request names an area of interest as a WKT polygon, an acquisition window
// and the SAR polarizations that must be present in both the "before" and
// "after" scenes:
//
//	{"request_id":"r1",
//	 "aoi_wkt":"POLYGON((72.521 23.042,72.535 23.042,72.535 23.032,72.521 23.032,72.521 23.042))",
//	 "start":"2024-01-01","end":"2024-03-01","polarizations":["VV","VH"]}
//
// Dates accept RFC 3339 or YYYY-MM-DD; start must precede end. When
// polarizations are omitted the service default applies. A missing request_id
// falls back to the message key, then to a hash of the payload, so replays of
// the same message produce the same id.
//
// # Results
//
// A result carries the resolved tile grid, the scenes used, how the SAR layers
// were obtained ("observed" or "synthetic"), the feature table shape and a
// risk summary. The feature table itself and the merged elevation raster are
// large and travel as artifacts, not in the message.
//
// # Risk summary
//
// Probabilities come from the external risk model, one per pixel:
//
//	level:        HIGH if max > 0.8, MODERATE if max > 0.5, else LOW
//	distribution: low < 0.3 <= moderate < 0.7 < high
//
// Rule-based labels flag pixels with correlation < 0.3 on slopes above 30
// degrees as landslide candidates, independent of the model.
package domain
