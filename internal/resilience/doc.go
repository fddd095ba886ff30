// Package resilience groups the fault tolerance building blocks used by the
// monitoring pipeline.
//
//   - retry: failure classification (KindOf), the job retry Policy, and
//     in-call exponential backoff for adapter requests.
//   - circuitbreaker: gobreaker profiles for fetch hosts, classifier
//     providers, notification channels and the database.
//
// Usage Example:
//
//	policy := retry.DefaultPolicy()
//	if ok, delay := policy.NextAttempt(job.Attempt, retry.KindOf(err)); ok {
//	    _ = job.ScheduleRetry(now.Add(delay), err.Error(), now)
//	}
package resilience
