package pmos

import "pmoscrawl/lib/telemetry"

var tracer = telemetry.Tracer("pmoscrawl/lib/scrapers/pmos")
