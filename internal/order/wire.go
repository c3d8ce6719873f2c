package order

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"comanda/internal/config"
	"comanda/internal/domain"
	"comanda/internal/order/controller"
	orderrepo "comanda/internal/order/repository"
	"comanda/internal/order/service"
	"comanda/internal/order/usecase"
	restaurantrepo "comanda/internal/restaurant/repository"
	"comanda/internal/scheduler"
	userrepo "comanda/internal/user/repository"
)

type Module struct {
	Controller *controller.OrderController
	UseCase    *usecase.OrderLifecycleUseCase
	Outbox     *orderrepo.MySQLOutboxRepository
}

// NewModule wires the order lifecycle. Events are written to the outbox only
// when withEvents is set; otherwise nothing would ever drain it.
func NewModule(db *sqlx.DB, cfg *config.Config, gateway usecase.PaymentGateway, withEvents bool, logger *zap.Logger) *Module {
	orderRepo := orderrepo.NewMySQLOrderRepository(db)
	itemRepo := orderrepo.NewMySQLOrderItemRepository(db)
	webhookRepo := orderrepo.NewMySQLWebhookEventRepository(db)
	taskRepo := orderrepo.NewMySQLRetirementTaskRepository(db)
	outboxRepo := orderrepo.NewMySQLOutboxRepository(db)

	var outbox service.OutboxWriter
	if withEvents {
		outbox = outboxRepo
	}

	store := service.NewOrderStore(
		db,
		orderRepo,
		itemRepo,
		webhookRepo,
		taskRepo,
		outbox,
		logger,
		cfg.Order.TxTimeout,
	)

	uc := usecase.NewOrderLifecycleUseCase(
		store,
		restaurantrepo.NewMySQLRestaurantRepository(db),
		userrepo.NewMySQLUserRepository(db),
		gateway,
		domain.RetirementPolicy{
			Retention:     cfg.Order.Retention,
			DisplayWindow: cfg.Order.DisplayWindow,
		},
		logger,
		cfg.Order.MaxRetryAttempts,
	)

	return &Module{
		Controller: controller.NewOrderController(uc, logger),
		UseCase:    uc,
		Outbox:     outboxRepo,
	}
}

// RetirementJob archives delivered orders whose retention has elapsed.
func (m *Module) RetirementJob(batchSize int, logger *zap.Logger) scheduler.Job {
	return scheduler.JobFunc{
		JobName: "order-retirement",
		Fn: func(ctx context.Context) error {
			n, err := m.UseCase.RetireDueOrders(ctx, batchSize)
			if n > 0 {
				logger.Info("delivered orders retired", zap.Int("count", n))
			}
			return err
		},
	}
}
