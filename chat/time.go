package chat

import "time"

// nowFunc is overridable in tests that need to exercise certificate
// expiry at a fixed instant.
var nowFunc = time.Now
