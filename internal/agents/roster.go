package agents

import "github.com/talgya/mini-tycoon/internal/world"

// StartingStats is what every roster member begins with.
var StartingStats = Stats{Mood: 80, Energy: 100, Experience: 0, Money: 100000}

func pos(x, y int) world.Position { return world.Position{X: x, Y: y} }

// DefaultRoster returns the nine townspeople of the stock 16x12 map:
// four producers with sale sites and five consumers.
// Every call returns fresh values.
func DefaultRoster() []Agent {
	return []Agent{
		{
			ID: "boss-it", Name: "马极客 (Ma Geek)", Emoji: "👨‍💻", Title: "IT founder", Role: RoleProducer,
			Personality: "A fast-talking geek who loves AI and the future, always trying to sell pricey software services.",
			Position:    pos(13, 2), Home: pos(1, 1), Work: pos(13, 2),
			Action: "Pitching", Color: "bg-blue-600", Stats: StartingStats,
		},
		{
			ID: "boss-food", Name: "牛老板 (Chef Niu)", Emoji: "👨‍🍳", Title: "Restaurant owner", Role: RoleProducer,
			Personality: "Warm and loud, always inviting people to taste a new dish, careful with every coin.",
			Position:    pos(13, 9), Home: pos(1, 10), Work: pos(13, 9),
			Action: "Cooking", Color: "bg-orange-500", Stats: StartingStats,
		},
		{
			ID: "boss-finance", Name: "钱总 (Mr. Money)", Emoji: "🕴️", Title: "Financier", Role: RoleProducer,
			Personality: "Calm and shrewd, speaks in finance jargon, only interested in big deals.",
			Position:    pos(8, 6), Home: pos(4, 1), Work: pos(8, 6),
			Action: "Analyzing", Color: "bg-emerald-600", Stats: StartingStats,
		},
		{
			ID: "boss-free", Name: "苏设计师 (Su Design)", Emoji: "🎨", Title: "Freelance designer", Role: RoleProducer,
			Personality: "Easygoing and free-spirited, offers design and art consulting, dislikes being tied down.",
			Position:    pos(5, 5), Home: pos(4, 10), Work: pos(5, 5),
			Action: "Designing", Color: "bg-purple-500", Stats: StartingStats,
		},
		{
			ID: "cust-1", Name: "小张 (Zhang)", Emoji: "🙍‍♂️", Title: "Office worker", Role: RoleConsumer,
			Personality: "Hard-working, wants good food and gadgets but also wants to save money.",
			Position:    pos(2, 5), Home: pos(1, 4), Work: pos(11, 5),
			Action: LabelWandering, Color: "bg-slate-400", Stats: StartingStats,
		},
		{
			ID: "cust-2", Name: "李阿姨 (Aunt Li)", Emoji: "👩", Title: "Retiree", Role: RoleConsumer,
			Personality: "Loves to chat, curious about investment products, enjoys good food.",
			Position:    pos(6, 6), Home: pos(1, 7), Work: pos(6, 6),
			Action: "Exercising", Color: "bg-slate-400", Stats: StartingStats,
		},
		{
			ID: "cust-3", Name: "王同学 (Student Wang)", Emoji: "🧑‍🎓", Title: "University student", Role: RoleConsumer,
			Personality: "Very curious, loves novel tech products, on a tight budget.",
			Position:    pos(9, 2), Home: pos(4, 4), Work: pos(9, 2),
			Action: "Studying", Color: "bg-slate-400", Stats: StartingStats,
		},
		{
			ID: "cust-4", Name: "赵医生 (Dr. Zhao)", Emoji: "👨‍⚕️", Title: "Doctor", Role: RoleConsumer,
			Personality: "Busy, values quality of life, happy to pay for good service.",
			Position:    pos(3, 8), Home: pos(1, 8), Work: pos(3, 8),
			Action: LabelResting, Color: "bg-slate-400", Stats: StartingStats,
		},
		{
			ID: "cust-5", Name: "孙网红 (Influencer Sun)", Emoji: "🤳", Title: "Influencer", Role: RoleConsumer,
			Personality: "Chases trendy spots and fashionable items, always on the lookout for the next hit.",
			Position:    pos(10, 8), Home: pos(4, 7), Work: pos(10, 8),
			Action: "Streaming", Color: "bg-slate-400", Stats: StartingStats,
		},
	}
}

// SaleSites returns the work positions of all producers, in roster order.
func SaleSites(roster []*Agent) []world.Position {
	var sites []world.Position
	for _, a := range roster {
		if a.IsProducer() {
			sites = append(sites, a.Work)
		}
	}
	return sites
}
