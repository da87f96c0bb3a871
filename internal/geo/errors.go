package geo

import "github.com/rotisserie/eris"

// Sentinel errors. Match with eris.Is.
var (
	// ErrInvalidGeometry is returned for polygons with fewer than three vertices
	// or with non-finite coordinates.
	ErrInvalidGeometry = eris.New("geo: invalid geometry")

	// ErrNumericAnomaly signals a NaN or infinite distance. It indicates a logic
	// bug and is never recovered from.
	ErrNumericAnomaly = eris.New("geo: numeric anomaly")

	// ErrUnknownProjection is returned by ProjectorByName.
	ErrUnknownProjection = eris.New("geo: unknown projection")
)
