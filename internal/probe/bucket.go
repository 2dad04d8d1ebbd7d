package probe

// ResultBucketWidthMicros is the result partition width, floor(scheduled_at,
// 1h) — fixed, no configuration option for it.
const ResultBucketWidthMicros = 3600 * 1_000_000

// timeBucket floors scheduledAtMicros to the partition width.
func timeBucket(scheduledAtMicros int64) int64 {
	return (scheduledAtMicros / ResultBucketWidthMicros) * ResultBucketWidthMicros
}
