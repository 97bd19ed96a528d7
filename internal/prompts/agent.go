package prompts

// FallbackResponse is the user-facing message returned when the loop
// stops without the model ever composing a reply.
const FallbackResponse = "Desculpe, não consegui concluir o seu pedido agora. Pode tentar de novo com mais detalhes?"
