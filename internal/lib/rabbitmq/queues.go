package rabbitmq

import "github.com/magabrotheeeer/goflexconnect/internal/models"

// QueueConfig привязка очереди к exchange по ключу маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// AlertQueues привязывает очередь отправителя писем ко всем видам админских алертов.
// Ключ маршрутизации совпадает с видом алерта.
func AlertQueues(queueName string) []QueueConfig {
	kinds := models.AlertKinds()
	queues := make([]QueueConfig, 0, len(kinds))
	for _, kind := range kinds {
		queues = append(queues, QueueConfig{QueueName: queueName, RoutingKey: string(kind)})
	}
	return queues
}
