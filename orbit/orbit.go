// Package orbit produces the satellite ground-track geometry one pass at a
// time: nadir coordinates, the along-track sampling of the pass, and the
// across-track pixel grid of the observation swath.
package orbit

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/YaoYu9404/swot-simulator/settings"
)

// Mean Earth radius used for ground distances, km.
const earthRadiusKm = 6371.0

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Pass is the sampled geometry of one half-orbit. All slices share the line
// count N; the swath grids are N rows of M pixels.
type Pass struct {
	Cycle  int
	Number int

	Time        []time.Time
	AlongTrack  []float64 // km from the start of the pass, N
	AcrossTrack []float64 // km from nadir, M, excludes the nadir gap
	LonNadir    []float64 // degrees, N
	LatNadir    []float64 // degrees, N
	Lon         [][]float64
	Lat         [][]float64
}

// NumLines returns the along-track sample count.
func (p *Pass) NumLines() int { return len(p.AlongTrack) }

// NumPixels returns the across-track pixel count.
func (p *Pass) NumPixels() int { return len(p.AcrossTrack) }

// Propagator samples the ground track of a TLE-described orbit.
type Propagator struct {
	sat satellite.Satellite
}

// NewPropagator constructs a propagator from two line element strings.
func NewPropagator(tle1, tle2 string) (*Propagator, error) {
	if tle1 == "" || tle2 == "" {
		return nil, fmt.Errorf("orbit: both TLE lines are required")
	}
	return &Propagator{sat: satellite.TLEToSat(tle1, tle2, satellite.GravityWGS72)}, nil
}

// SamplePass walks simulation time from start for the given duration,
// emitting one line every DeltaAl kilometres of ground track. The across
// track grid spans the swath at DeltaAc spacing, excluding the nadir gap.
func (p *Propagator) SamplePass(start time.Time, duration time.Duration, cycle, number int, params *settings.Parameters) *Pass {
	pass := &Pass{
		Cycle:       cycle,
		Number:      number,
		AcrossTrack: CrossTrackGrid(params),
	}

	// Time step from the instantaneous ground speed at the start of the
	// pass, so lines land DeltaAl apart.
	lat0, lon0 := p.nadir(start)
	lat1, lon1 := p.nadir(start.Add(time.Second))
	groundSpeed := greatCircleKm(lat0, lon0, lat1, lon1) // km/s
	if groundSpeed <= 0 {
		return pass
	}
	step := time.Duration(params.DeltaAl / groundSpeed * float64(time.Second))

	var distance float64
	prevLat, prevLon := lat0, lon0
	for t := start; t.Sub(start) < duration; t = t.Add(step) {
		lat, lon := p.nadir(t)
		if len(pass.Time) > 0 {
			distance += greatCircleKm(prevLat, prevLon, lat, lon)
		}
		prevLat, prevLon = lat, lon

		pass.Time = append(pass.Time, t)
		pass.AlongTrack = append(pass.AlongTrack, distance)
		pass.LatNadir = append(pass.LatNadir, lat)
		pass.LonNadir = append(pass.LonNadir, lon)
	}

	p.fillSwath(pass)
	return pass
}

// Period estimates the orbital period from the ground-track speed at t. One
// pass covers half a period.
func (p *Propagator) Period(t time.Time) time.Duration {
	lat0, lon0 := p.nadir(t)
	lat1, lon1 := p.nadir(t.Add(time.Second))
	speed := greatCircleKm(lat0, lon0, lat1, lon1) // km/s
	if speed <= 0 {
		return 0
	}
	return time.Duration(2 * math.Pi * earthRadiusKm / speed * float64(time.Second))
}

// nadir returns the sub-satellite point at time t, degrees.
func (p *Propagator) nadir(t time.Time) (lat, lon float64) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	pos := satellite.ECIToECEF(posECI, gmst)

	lat = math.Atan2(pos.Z, math.Hypot(pos.X, pos.Y)) * rad2deg
	lon = math.Atan2(pos.Y, pos.X) * rad2deg
	return lat, lon
}

// fillSwath offsets each nadir point perpendicular to the local track heading
// to build the swath longitude/latitude grids.
func (prop *Propagator) fillSwath(pass *Pass) {
	n, m := pass.NumLines(), pass.NumPixels()
	pass.Lon = make([][]float64, n)
	pass.Lat = make([][]float64, n)
	for i := 0; i < n; i++ {
		// Heading from the neighbouring line; the last line reuses the
		// previous segment.
		j := i
		if j == n-1 {
			j = n - 2
		}
		var heading float64
		if j >= 0 {
			heading = bearingDeg(pass.LatNadir[j], pass.LonNadir[j], pass.LatNadir[j+1], pass.LonNadir[j+1])
		}

		pass.Lon[i] = make([]float64, m)
		pass.Lat[i] = make([]float64, m)
		for k, x := range pass.AcrossTrack {
			// Positive across-track distances sit to the right of the
			// direction of motion.
			lat, lon := destination(pass.LatNadir[i], pass.LonNadir[i], heading+90.0, x)
			pass.Lat[i][k] = lat
			pass.Lon[i][k] = lon
		}
	}
}

// CrossTrackGrid builds the across-track pixel coordinates: DeltaAc spacing
// out to ±HalfSwath with the ±HalfGap nadir hole removed.
func CrossTrackGrid(params *settings.Parameters) []float64 {
	var grid []float64
	for x := -params.HalfSwath; x <= params.HalfSwath+1e-9; x += params.DeltaAc {
		if math.Abs(x) < params.HalfGap {
			continue
		}
		grid = append(grid, x)
	}
	return grid
}

// greatCircleKm is the haversine distance between two points, km.
func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := lat1*deg2rad, lat2*deg2rad
	dphi := (lat2 - lat1) * deg2rad
	dlambda := (lon2 - lon1) * deg2rad

	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// bearingDeg is the initial great-circle bearing from point 1 to point 2.
func bearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := lat1*deg2rad, lat2*deg2rad
	dlambda := (lon2 - lon1) * deg2rad

	y := math.Sin(dlambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dlambda)
	return math.Atan2(y, x) * rad2deg
}

// destination moves distanceKm along the given bearing from a start point.
func destination(lat, lon, bearing, distanceKm float64) (destLat, destLon float64) {
	// A negative distance walks the opposite bearing.
	if distanceKm < 0 {
		bearing += 180.0
		distanceKm = -distanceKm
	}
	phi := lat * deg2rad
	lambda := lon * deg2rad
	theta := bearing * deg2rad
	delta := distanceKm / earthRadiusKm

	destPhi := math.Asin(math.Sin(phi)*math.Cos(delta) + math.Cos(phi)*math.Sin(delta)*math.Cos(theta))
	destLambda := lambda + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi),
		math.Cos(delta)-math.Sin(phi)*math.Sin(destPhi),
	)
	// Normalize to [-180, 180).
	destLambda = math.Mod(destLambda+3*math.Pi, 2*math.Pi) - math.Pi
	return destPhi * rad2deg, destLambda * rad2deg
}
