// Package chatrelay relays chat messages between publishing clients and channel
// subscribers through a message broker, delivering each distinct message once
// within a bounded window while channels come and go at runtime.
//
// Works both as a library embedded in an existing server AND as a standalone
// STOMP-over-WebSocket service (cmd/chatrelay-server).
//
// # Features
//
//   - Time-windowed deduplication: a per-channel SHA-256 fingerprint in a shared cache
//     suppresses an identical message published again within the window (default 5m)
//   - Dual delivery: every accepted message goes to the broker for other instances and
//     straight to local subscribers
//   - Dynamic channels: durable queue, binding and consumer relay are created on first
//     use and torn down on request, idempotently and safely under concurrency
//   - Bounded concurrency: relays and command handlers run on sized worker pools that
//     drain with a grace period on shutdown
//   - Bearer-token authorization of CONNECT and SEND frames with identity binding
//   - Pluggable collaborators: AMQP or NATS broker, Redis cache, SQL (Relica) or MongoDB
//     message store, JWT validator, zap logger, Prometheus observer
//
// # Quick Start
//
//	manager, _ := chatrelay.NewChannelManager(
//	    chatrelay.WithBroker(gateway),
//	    chatrelay.WithCache(cache),
//	    chatrelay.WithLocalDelivery(hub),
//	    chatrelay.WithRelayPool(relayPool),
//	    chatrelay.WithLogger(logger),
//	)
//	if err := manager.DeclareExchange(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	publisher, _ := chatrelay.NewPublisher(
//	    chatrelay.WithPublisherBroker(gateway, manager),
//	    chatrelay.WithPublisherCache(cache),
//	    chatrelay.WithPublisherDelivery(hub),
//	    chatrelay.WithPublisherLogger(logger),
//	)
//
//	handlers, _ := chatrelay.NewCommandHandlers(
//	    chatrelay.WithHandlersPublisher(publisher),
//	    chatrelay.WithHandlersRepository(store),
//	    chatrelay.WithHandlersDelivery(hub),
//	    chatrelay.WithHandlersLogger(logger),
//	)
//	router, _ := chatrelay.NewRouter(handlers, commandPool, logger)
//
// # Destinations
//
// Clients send to /pub/chat.message.<channel>, /pub/chat.message.update.<channel> and
// /pub/chat.message.delete.<channel>. Messages published on this instance and command
// results are delivered to /topic/chat.channel.<channel>; messages relayed from the
// broker are delivered to /exchange/chat.exchange/chat.channel.<channel>. A client
// subscribes to one of the two message destinations.
//
// # Error Handling
//
// All errors are *Error values with a machine-readable Code:
//
//	if chatrelay.HasCode(err, chatrelay.ErrCodeResource) {
//	    // queue declare, bind or delete failed
//	}
//
// Command handlers never return failures to the transport; they deliver a
// {"status":"error","message":...} response on the channel topic instead.
package chatrelay
