package pipeline

import "time"

// timeNow stamps createdAt. Tests replace it to pin timestamps.
var timeNow = time.Now
