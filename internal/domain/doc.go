// Package domain models forecast grid frames and the delta series derived from them.
//
// # Data Source
//
// Frames originate from the DWD open data server, which publishes the ICON-D2
// regional model as one bzip2-compressed GRIB2 file per forecast hour, e.g.
// https://opendata.dwd.de/weather/nwp/icon-d2/grib/12/tot_prec/. The acquisition
// stage scrapes that index, downloads every file and hands the decompressed
// GRIB2 to an external decoder.
//
// # File Naming
//
// Remote filenames embed the model run and forecast hour:
//
//	icon-d2_germany_regular-lat-lon_single-level_2024042612_007_2d_tot_prec.grib2.bz2
//	                                             ^^^^^^^^^^ ^^^
//	                                             run (YYYYMMDDHH, UTC)  offset (hours)
//
// The canonical name of a frame is its valid time (run + offset) formatted as
// "02.01.2006_15:04" followed by the Unix seconds of the same instant:
//
//	2024042612 + 007  →  "26.04.2024_19:00_1714158000"
//
// See [Canonicalize].
//
// # Grid Conventions
//
// Values are stored row-major: all longitudes of the first latitude row, then
// the next row. Coordinates are quantized to fixed point by truncating
// value × multiplier toward zero, so 52.535 with multiplier 100 becomes 5253.
// Steps are the quantized difference of the first two samples on each axis;
// the grid is assumed to be regular.
//
// Missing cells are represented by [Missing] and never take part in
// arithmetic. The out-of-band sentinel (-100500.0) is only materialized by the
// wgf4 encoder.
//
// # Differencing
//
// Total precipitation is accumulated since the model run, so consecutive
// frames are turned into per-step increments by [Differencer]. The first frame
// of a batch is passed through unchanged.
package domain
