package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_runs_total",
			Help: "Total send-reminders runs",
		},
		[]string{"dry_run"},
	)

	RemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_emails_sent_total",
			Help: "Total reminder emails sent",
		},
		[]string{"type"},
	)

	ReminderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_email_failures_total",
			Help: "Total reminder emails that could not be sent",
		},
		[]string{"type"},
	)
)

func Init() {
	prometheus.MustRegister(DispatchRuns)
	prometheus.MustRegister(RemindersSent)
	prometheus.MustRegister(ReminderFailures)
}
