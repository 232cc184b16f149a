package models

// All lists every persisted model in dependency order for sqlite AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusEvent{},
		&Payment{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
