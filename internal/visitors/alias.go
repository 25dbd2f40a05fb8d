package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Amber", "Brisk", "Calm", "Dapper", "Eager", "Fuzzy", "Gentle", "Hasty", "Idle", "Jolly",
	"Keen", "Lucky", "Mellow", "Nimble", "Odd", "Proud", "Quiet", "Rusty", "Sunny", "Tidy",
	"Upbeat", "Vivid", "Witty", "Young", "Zesty", "Bold", "Cozy", "Dusky", "Fancy", "Glossy",
	"Humble", "Icy", "Jazzy", "Kind", "Lively", "Misty", "Noble", "Plucky", "Rapid", "Shy",
}

var aliasNouns = []string{
	"Badger", "Comet", "Dingo", "Ember", "Ferret", "Gecko", "Heron", "Ibis", "Jackal", "Kestrel",
	"Lemur", "Marmot", "Newt", "Ocelot", "Puffin", "Quokka", "Robin", "Stoat", "Tapir", "Urchin",
	"Vole", "Walrus", "Yak", "Zebra", "Acorn", "Bramble", "Canyon", "Delta", "Fjord", "Glacier",
	"Harbor", "Island", "Juniper", "Lagoon", "Meadow", "Nebula", "Orchard", "Pebble", "Ridge", "Summit",
}

// Alias returns a stable, human friendly display name for an actor key, so
// anonymous viewers can be listed without exposing their token.
func Alias(actorKey string) string {
	h := fnv.New32a()
	h.Write([]byte(actorKey))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	noun := aliasNouns[(index/len(aliasAdjectives))%len(aliasNouns)]
	return adj + " " + noun
}
