// Package season resolves school-year seasons. A season runs from August 1
// of its start year through July 31 of the following year and is identified
// by its start year.
package season
