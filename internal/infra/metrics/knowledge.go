package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(knowledgeRequestsTotal) }

var knowledgeRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "knowledge_source_requests_total",
		Help: "Knowledge source lookups by operation and result.",
	},
	[]string{"op", "result"}, // op=search|summary, result=ok|empty|not_found|error
)

func IncKnowledgeRequest(op, result string) {
	knowledgeRequestsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}
