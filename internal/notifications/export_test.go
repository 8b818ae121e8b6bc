package notifications

import "time"

// SetTimeout shortens the BRPOP wait for tests.
func (q *RedisQueue) SetTimeout(d time.Duration) { q.timeout = d }
