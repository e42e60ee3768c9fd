package store

import "fmt"

const (
	QueueKey     = "payments:queue"
	DelayedKey   = "payments:delayed"
	DeadKey      = "payments:dead"
	AccountedKey = "payments:accounted"
)

func acctKey(processor string, bucketSecond int64) string {
	return fmt.Sprintf("acct:%s:%d", processor, bucketSecond)
}

// acctIndexKey names the sorted set that records which buckets a processor
// actually has data in, so range queries over "all time" never have to
// scan the full bucket space — only the buckets that were ever written.
func acctIndexKey(processor string) string {
	return "acct:index:" + processor
}

func healthKey(processor string) string {
	return "health:" + processor
}

func healthLockKey(processor string) string {
	return "health:lock:" + processor
}
