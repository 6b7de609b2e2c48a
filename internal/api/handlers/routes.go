package handlers

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(api fiber.Router, post *PostHandler, platform *PlatformHandler) {
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.GetPost)
	api.Get("/posts/:id/history", post.PostHistory)
	api.Delete("/posts/:id", post.RemovePost)
	api.Post("/posts/:id/publish", post.PublishPost)

	api.Post("/media", post.UploadMedia)
	api.Post("/publish-direct", post.PublishDirect)

	api.Get("/health", platform.Health)
	api.Get("/platforms/:platform/status", platform.PlatformStatus)
}
